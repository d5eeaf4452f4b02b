package configjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/model"
)

func TestParseEmptyPayloadForKindWithoutRequirements(t *testing.T) {
	p, err := Parse(model.KindMon, nil)
	require.NoError(t, err)
	assert.Empty(t, p.Files)
}

func TestParseRequiredFilesMissing(t *testing.T) {
	_, err := Parse(model.KindPrometheus, []byte(`{"files": {}}`))
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindConfigJSONMalformed))
	assert.Contains(t, err.Error(), "prometheus.yml")
}

func TestParseFilesStringAndLines(t *testing.T) {
	payload := []byte(`{
		"files": {
			"prometheus.yml": "global: {}\n",
			"extra.conf": ["line one", "line two"]
		}
	}`)
	p, err := Parse(model.KindPrometheus, payload)
	require.NoError(t, err)
	assert.Equal(t, "global: {}\n", p.Files["prometheus.yml"])
	assert.Equal(t, "line one\nline two", p.Files["extra.conf"])
}

func TestParseUnrecognizedKeysIgnored(t *testing.T) {
	p, err := Parse(model.KindMon, []byte(`{"config": "[global]\n", "wat": 42}`))
	require.NoError(t, err)
	assert.Equal(t, "[global]\n", p.Config)
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse(model.KindMon, []byte(`{`))
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindConfigJSONMalformed))
}

func TestExtraFieldAccessors(t *testing.T) {
	p, err := Parse(model.KindAlertmanager, []byte(`{
		"files": {"alertmanager.yml": ""},
		"peers": ["host2:9094"],
		"pool": "rbd",
		"uid": 167
	}`))
	require.NoError(t, err)

	peers, ok := p.StringsField("peers")
	require.True(t, ok)
	assert.Equal(t, []string{"host2:9094"}, peers)

	pool, ok := p.StringField("pool")
	require.True(t, ok)
	assert.Equal(t, "rbd", pool)

	uid, ok := p.IntField("uid")
	require.True(t, ok)
	assert.Equal(t, 167, uid)

	_, ok = p.StringField("absent")
	assert.False(t, ok)
}

func TestMemoryField(t *testing.T) {
	p, err := Parse(model.KindMon, []byte(`{"memory_limit": "512m", "memory_request": 1048576}`))
	require.NoError(t, err)

	limit, ok, err := p.MemoryField("memory_limit")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(512*1024*1024), limit)

	req, ok, err := p.MemoryField("memory_request")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1048576), req)

	_, ok, err = p.MemoryField("absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileNamesRejectsEscapes(t *testing.T) {
	p, err := Parse(model.KindMon, []byte(`{"files": {"../evil": "x"}}`))
	require.NoError(t, err)
	_, err = p.FileNames()
	assert.Error(t, err)
}
