package templates_test

import (
	"bytes"
	"testing"

	"github.com/SpatiumPortae/lanbeam/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpls, err := templates.Load()
	require.NoError(t, err)
	tmpl, ok := tmpls[templates.RelayLanding]
	require.True(t, ok)

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Session string
		Relay   string
		Members int
	}{Session: "brave-quiet-otter", Relay: "10.0.0.1:8080", Members: 1})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "lanbeam join --relay 10.0.0.1:8080 brave-quiet-otter")
}
