package logging

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("chatty").GetLevel())
	assert.Equal(t, io.Discard, New("off").Out)
	assert.Equal(t, io.Discard, New("none").Out)
}
