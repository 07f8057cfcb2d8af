package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsValueAndScan(t *testing.T) {
	in := Flags{"virustotal": true, "shodan": false}

	v, err := in.Value()
	require.NoError(t, err)

	var out Flags
	require.NoError(t, out.Scan([]byte(v.(string))))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)

	assert.Error(t, out.Scan(42))

	v, err = Flags(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}

func TestScanRecordTableName(t *testing.T) {
	assert.Equal(t, "scan_records", ScanRecord{}.TableName())
}
