package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDriveIDShape(t *testing.T) {
	id := NewDriveID("p115")
	assert.True(t, strings.HasPrefix(id.String(), "p115_"))
	assert.Equal(t, "p115", id.Kind())
	assert.False(t, id.IsZero())
}

func TestNewDriveIDMonotonic(t *testing.T) {
	a := NewDriveID("p115")
	b := NewDriveID("p115")
	assert.NotEqual(t, a.String(), b.String())
}

func TestDriveIDScanValue(t *testing.T) {
	id := NewDriveID("p115")

	v, err := id.Value()
	require.NoError(t, err)

	var scanned DriveID
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, id, scanned)

	var zero DriveID
	zv, err := zero.Value()
	require.NoError(t, err)
	assert.Nil(t, zv)
}

func TestNewTaskIDShape(t *testing.T) {
	id := NewTaskID()
	assert.True(t, strings.HasPrefix(id.String(), "task_"))
	assert.False(t, id.IsZero())
}

func TestRecordIDComposite(t *testing.T) {
	task := NewTaskID()
	rec := NewRecordID(task, "item-42")

	assert.Equal(t, task.String()+":item-42", rec.String())
	assert.False(t, rec.IsZero())

	var zero RecordID
	assert.True(t, zero.IsZero())
}

func TestParseDriveIDRejectsEmpty(t *testing.T) {
	_, err := ParseDriveID("")
	require.Error(t, err)
}
