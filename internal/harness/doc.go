// Package harness runs fixture documents against the engine and checks
// the outgoing log and page map they leave behind.
//
// # Document Format
//
// Documents are YAML (or JSON) files:
//
//	title: sync_duplicate
//	programs:
//	  - id: 1
//	    program: sync_duplicate
//	    target: 2
//	  - id: 2
//	    program: ping
//	fixtures:
//	  - title: single-async
//	    messages:
//	      - source: 1000001
//	        destination: 1
//	        payload: { kind: utf8, value: async }
//	    expected:
//	      step: 0
//	      messages:
//	        - destination: 1000001
//	          payload: { kind: i32, value: 1 }
//	      allocation:
//	        - { page_num: 0, program_id: 2 }
//
// Actor ids are integers placed in the low bytes of an ActorID. Payload
// kinds are utf8, i32, i64, u64 and bytes (0x-hex); integers are encoded
// little-endian. Documents are checked against the CUE schema returned
// by SchemaSource before they are decoded.
//
// # Verification
//
// Each fixture runs on a fresh engine. Messages that reach an actor with
// no program make up the outgoing log, which is compared with
// expected.messages in emission order. The page map is compared with
// expected.allocation in page order. Every mismatch adds one
// "Expectation error" line to the fixture output; a section with none
// ends in "Ok".
package harness
