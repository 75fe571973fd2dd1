// Package notifier delivers a finished summary to the operator chat.
//
// Delivery is synchronous: up to MaxAttempts sends with a fixed RetryInterval
// between them. Every failure kind (transport error, timeout, rejected
// response) counts as one failed attempt. The outcome is returned, never
// raised, and nothing here touches storage.
package notifier
