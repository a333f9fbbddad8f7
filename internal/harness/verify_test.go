package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Zombieliu/gear/internal/ir"
)

func actor(n uint64) ir.ActorID {
	return ir.ActorIDFromUint64(n)
}

func logged(dest uint64, payload string) ir.Message {
	return ir.Message{Destination: actor(dest), Payload: []byte(payload)}
}

func TestCheckMessages(t *testing.T) {
	log := []ir.Message{logged(9, "a"), logged(10, "b")}

	tests := []struct {
		name       string
		want       []MessageExpectation
		mismatches int
		output     string
	}{
		{
			name: "exact match",
			want: []MessageExpectation{
				{Destination: actor(9), Payload: []byte("a")},
				{Destination: actor(10), Payload: []byte("b")},
			},
			output: "Messages:\nOk\n",
		},
		{
			name:       "count differs",
			want:       []MessageExpectation{{Destination: actor(9), Payload: []byte("a")}},
			mismatches: 1,
			output:     "Messages:\nExpectation error (messages count doesn't match)\n",
		},
		{
			name: "emission order matters",
			want: []MessageExpectation{
				{Destination: actor(10), Payload: []byte("b")},
				{Destination: actor(9), Payload: []byte("a")},
			},
			mismatches: 4,
			output: "Messages:\n" +
				"Expectation error (destination doesn't match)\n" +
				"Expectation error (payload doesn't match)\n" +
				"Expectation error (destination doesn't match)\n" +
				"Expectation error (payload doesn't match)\n",
		},
		{
			name: "payload only",
			want: []MessageExpectation{
				{Destination: actor(9), Payload: []byte("a")},
				{Destination: actor(10), Payload: []byte("c")},
			},
			mismatches: 1,
			output:     "Messages:\nExpectation error (payload doesn't match)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			n := CheckMessages(&out, log, tt.want)
			assert.Equal(t, tt.mismatches, n)
			assert.Equal(t, tt.output, out.String())
		})
	}
}

func TestCheckMessages_BothEmpty(t *testing.T) {
	var out strings.Builder
	assert.Zero(t, CheckMessages(&out, nil, nil))
	assert.Equal(t, "Messages:\nOk\n", out.String())
}

func TestCheckAllocation(t *testing.T) {
	pages := []ir.Allocation{{Page: 0, Program: actor(3)}, {Page: 1, Program: actor(3)}}

	tests := []struct {
		name       string
		want       []ir.Allocation
		mismatches int
		output     string
	}{
		{
			name:   "exact match",
			want:   []ir.Allocation{{Page: 0, Program: actor(3)}, {Page: 1, Program: actor(3)}},
			output: " Allocation:\nOk\n",
		},
		{
			name:       "count differs",
			want:       nil,
			mismatches: 1,
			output:     " Allocation:\nExpectation error (pages count doesn't match)\n",
		},
		{
			name:       "page and owner differ",
			want:       []ir.Allocation{{Page: 0, Program: actor(3)}, {Page: 2, Program: actor(4)}},
			mismatches: 2,
			output: " Allocation:\n" +
				"Expectation error (PageNumber doesn't match)\n" +
				"Expectation error (ProgramId doesn't match)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			n := CheckAllocation(&out, pages, tt.want)
			assert.Equal(t, tt.mismatches, n)
			assert.Equal(t, tt.output, out.String())
		})
	}
}
