// Package verification issues and delivers one-time SMS codes that recipients
// use to satisfy SMS authorization.
//
// Codes are six digits, single use, and bound to an E.164 phone number. Sends
// are throttled per phone number by an injected rate limiter.
package verification
