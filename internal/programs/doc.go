// Package programs holds the message programs gtest fixtures can deploy.
//
// Each program is a msg.Handler built by a Factory. Fixtures refer to
// programs by name:
//
//	sync_duplicate  counts "async" requests, pings Target and replies with the count
//	ping            replies PONG to PING
//	doubler         replies with twice the i32 it receives
//	proxy           forwards an i32 to Target and relays the typed reply
//	echo            replies with its payload in parts, optionally copying it to Target
//	alloc           allocates and frees memory pages on command
package programs
