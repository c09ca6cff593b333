// Package relay is the signaling relay core: a registry mapping user
// identities to live connections, a router that dispatches inbound envelopes
// by kind, and the single delivery primitive shared by every caller that needs
// to push an envelope to a user.
//
// The relay does not relay media and never authenticates anyone. Identities
// handed to it are trusted.
package relay
