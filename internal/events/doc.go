// Package events publishes domain events about conversations to an AMQP
// topic exchange so downstream services (CRM sync, analytics, alerting) can
// react without being in the live path.
//
// Publishing is best effort. The live chat never waits on, or fails
// because of, the event bus; callers log publish errors and move on.
package events
