// Package transfer moves a single blob directly between two peers.
//
// A Sender offers data under a Ticket. The ticket is small enough to ride
// in one control-plane envelope; the receiver redeems it by dialing the
// sender, presenting the token and verifying the BLAKE2b-256 digest of
// what it gets back before acknowledging.
package transfer
