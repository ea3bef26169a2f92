// Package daemonctl launches, stops and inspects the tally daemon from the
// CLI side of the socket.
package daemonctl
