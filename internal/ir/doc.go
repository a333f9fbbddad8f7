// Package ir provides the identity and message types shared by every layer.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - MessageID and ActorID are fixed 32-byte values, comparable with ==
//   - Message ids are content-addressed (see hash.go), never random
//   - Logical clocks (Seq) only, never wall-clock timestamps
//   - All JSON tags use snake_case
package ir
