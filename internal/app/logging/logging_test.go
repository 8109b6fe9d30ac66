package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaggedOutput(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, false)
	t.Cleanup(func() { Setup(nil, false) })

	Infof("開始 %s", "enfermedades")
	Errorf("Error con %s", "Roya")
	Createdf("Insertada: %s", "Roya")
	Updatedf("Actualizada: %s", "Oídio")
	Debugf("見えないはず")

	out := buf.String()
	assert.Contains(t, out, "INFO:")
	assert.Contains(t, out, "開始 enfermedades")
	assert.Contains(t, out, "ERROR:")
	assert.Contains(t, out, "Error con Roya")
	assert.Contains(t, out, "✅")
	assert.Contains(t, out, "🔄")
	assert.NotContains(t, out, "見えないはず")
	assert.Contains(t, out, "logging_test.go", "呼び出し元のファイル名が出力されること")
}

func TestDebugGate(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, true)
	t.Cleanup(func() { Setup(nil, false) })

	assert.True(t, debugEnabled.Load())
	Debugf("detail %d", 3)
	assert.Contains(t, buf.String(), "DEBUG:")
	assert.Contains(t, buf.String(), "detail 3")

	buf.Reset()
	SetDebug(false)
	Debugf("hidden")
	assert.Empty(t, buf.String())
}
