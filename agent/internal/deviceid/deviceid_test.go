package deviceid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const piCPUInfo = `processor	: 0
model name	: ARMv7 Processor rev 4 (v7l)
BogoMIPS	: 38.40

Hardware	: BCM2835
Revision	: a02082
Serial		: 00000000a1b2c3d4
Model		: Raspberry Pi 3 Model B Rev 1.2
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cpuinfo")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFromCPUInfo(t *testing.T) {
	id, err := FromCPUInfo(writeFile(t, piCPUInfo))
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4", id)
}

func TestFromCPUInfo_ShortSerial(t *testing.T) {
	id, err := FromCPUInfo(writeFile(t, "Serial: abc\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestFromCPUInfo_NoSerial(t *testing.T) {
	_, err := FromCPUInfo(writeFile(t, "processor\t: 0\nmodel name\t: x86\n"))
	assert.ErrorIs(t, err, ErrNoSerial)

	_, err = FromCPUInfo(writeFile(t, "Serial\t:\n"))
	assert.ErrorIs(t, err, ErrNoSerial)
}

func TestResolve(t *testing.T) {
	id, err := Resolve("  custom-id ", "/nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "custom-id", id)

	id, err = Resolve("", writeFile(t, piCPUInfo))
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4", id)

	host, err := os.Hostname()
	require.NoError(t, err)
	id, err = Resolve("", filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Equal(t, host, id)
}
