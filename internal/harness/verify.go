package harness

import (
	"bytes"
	"strings"

	"github.com/Zombieliu/gear/internal/ir"
)

// MessageExpectation is an expected outgoing message in wire form.
type MessageExpectation struct {
	Destination ir.ActorID
	Payload     []byte
}

// CheckMessages compares the outgoing log against want, position by
// position in emission order, and writes a section to out. It returns the
// number of mismatches; the section ends with "Ok" only when that is zero.
func CheckMessages(out *strings.Builder, log []ir.Message, want []MessageExpectation) int {
	mismatches := 0
	out.WriteString("Messages:\n")
	if len(want) != len(log) {
		out.WriteString("Expectation error (messages count doesn't match)\n")
		mismatches++
	} else {
		for i, exp := range want {
			got := log[i]
			if exp.Destination != got.Destination {
				out.WriteString("Expectation error (destination doesn't match)\n")
				mismatches++
			}
			if !bytes.Equal(exp.Payload, got.Payload) {
				out.WriteString("Expectation error (payload doesn't match)\n")
				mismatches++
			}
		}
	}
	if mismatches == 0 {
		out.WriteString("Ok\n")
	}
	return mismatches
}

// CheckAllocation compares the page map against want in page order and
// writes a section to out. It returns the number of mismatches.
func CheckAllocation(out *strings.Builder, pages []ir.Allocation, want []ir.Allocation) int {
	mismatches := 0
	out.WriteString(" Allocation:\n")
	if len(want) != len(pages) {
		out.WriteString("Expectation error (pages count doesn't match)\n")
		mismatches++
	} else {
		for i, exp := range want {
			if exp.Page != pages[i].Page {
				out.WriteString("Expectation error (PageNumber doesn't match)\n")
				mismatches++
			}
			if exp.Program != pages[i].Program {
				out.WriteString("Expectation error (ProgramId doesn't match)\n")
				mismatches++
			}
		}
	}
	if mismatches == 0 {
		out.WriteString("Ok\n")
	}
	return mismatches
}
