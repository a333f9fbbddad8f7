package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const syncDuplicateDoc = `title: sync_duplicate
programs:
  - { id: 1, program: sync_duplicate, target: 2 }
  - { id: 2, program: ping }
fixtures:
  - title: single-async
    messages:
      - { source: 1000001, destination: 1, payload: { kind: utf8, value: async } }
    expected:
      messages:
        - { destination: 1000001, payload: { kind: i32, value: 1 } }
`

const failingDoc = `title: failing
programs:
  - { id: 2, program: ping }
fixtures:
  - title: expects-wrong-reply
    messages:
      - { source: 1000001, destination: 2, payload: { kind: utf8, value: PING } }
    expected:
      messages:
        - { destination: 1000001, payload: { kind: utf8, value: PANG } }
`

const okOutput = "Messages:\nOk\n Allocation:\nOk\n"

// writeDocument writes content to dir/name and returns the path.
func writeDocument(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
