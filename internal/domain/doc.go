// Package domain defines the match and commentary records the real-time
// core forwards, and the Notifier contract the CRUD layer calls into.
package domain
