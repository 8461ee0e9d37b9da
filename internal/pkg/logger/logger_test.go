package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	f := &levelFilter{min: zerolog.ErrorLevel, w: &buf}

	n, err := f.WriteLevel(zerolog.InfoLevel, []byte("info\n"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Empty(t, buf.String())

	_, err = f.WriteLevel(zerolog.ErrorLevel, []byte("error\n"))
	assert.NoError(t, err)
	assert.Equal(t, "error\n", buf.String())
}

func TestInit_InvalidLevel(t *testing.T) {
	err := Init(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestInit_FileWriters(t *testing.T) {
	dir := t.TempDir()
	err := Init(Config{
		Level:        "info",
		Format:       "json",
		FileEnabled:  true,
		FilePath:     dir,
		RotationSize: 1,
		ServiceName:  "snowbot-test",
	})
	assert.NoError(t, err)
}
