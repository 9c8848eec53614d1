// Package broker adapts NATS JetStream to courier's Delivery/Publisher/Consumer contracts.
//
// Each consumed subject gets one durable pull consumer named
// <ConsumerPrefix>-<subject> (sanitized). Deliveries are handed to the handler
// on their own goroutine, bounded by MaxInFlight.
package broker
