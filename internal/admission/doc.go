// Package admission decides whether an HTTP upgrade request may become a
// live connection. The Gate checks the request path, then consults an
// optional Policy; denials map to HTTP statuses and never touch connection
// state.
package admission
