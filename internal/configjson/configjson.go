// Package configjson parses the JSON payload the orchestrator delivers
// on deploy: per-kind configuration files, keyrings, and a handful of
// kind-specific knobs.
package configjson

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	units "github.com/docker/go-units"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/daemonspec"
	"github.com/cephadm/cephadm/internal/model"
)

// Payload is the decoded config-json document. Unrecognized keys are
// kept in Extra so kind-specific consumers (nfs pool/namespace,
// alertmanager peers, custom container settings) can pull what they
// need; keys no kind recognizes are simply ignored.
type Payload struct {
	Config  string
	Keyring string
	// Files maps a file name (relative to the daemon's data directory)
	// to its content.
	Files map[string]string
	Extra map[string]json.RawMessage
}

type rawPayload struct {
	Config  string                     `json:"config"`
	Keyring string                     `json:"keyring"`
	Files   map[string]json.RawMessage `json:"files"`
}

// Parse decodes data and validates it against kind's required-files
// list. An empty payload is valid for kinds with no requirements.
func Parse(kind model.Kind, data []byte) (*Payload, error) {
	p := &Payload{Files: map[string]string{}, Extra: map[string]json.RawMessage{}}
	if len(data) > 0 {
		var raw rawPayload
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, agenterr.Wrap(agenterr.KindConfigJSONMalformed, "configjson.Parse", string(kind), err)
		}
		p.Config = raw.Config
		p.Keyring = raw.Keyring
		for name, content := range raw.Files {
			s, err := fileContent(content)
			if err != nil {
				return nil, agenterr.Wrap(agenterr.KindConfigJSONMalformed, "configjson.Parse",
					fmt.Sprintf("%s: file %q", kind, name), err)
			}
			p.Files[name] = s
		}
		if err := json.Unmarshal(data, &p.Extra); err != nil {
			return nil, agenterr.Wrap(agenterr.KindConfigJSONMalformed, "configjson.Parse", string(kind), err)
		}
	}

	table, ok := daemonspec.Lookup(kind)
	if !ok {
		return nil, agenterr.New(agenterr.KindUsage, "configjson.Parse", "unknown daemon kind "+string(kind))
	}
	var missing []string
	for _, name := range table.RequiredFiles {
		if _, ok := p.Files[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, agenterr.New(agenterr.KindConfigJSONMalformed, "configjson.Parse",
			fmt.Sprintf("%s deployment requires config-json to contain file content for %s", kind, strings.Join(missing, ", ")))
	}
	return p, nil
}

// fileContent accepts either a plain string or an array of lines.
func fileContent(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", fmt.Errorf("must be a string or an array of lines")
	}
	return strings.Join(lines, "\n"), nil
}

// StringField returns the named Extra key decoded as a string.
func (p *Payload) StringField(name string) (string, bool) {
	raw, ok := p.Extra[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// IntField returns the named Extra key decoded as an int.
func (p *Payload) IntField(name string) (int, bool) {
	raw, ok := p.Extra[name]
	if !ok {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

// StringsField returns the named Extra key decoded as a string list.
func (p *Payload) StringsField(name string) ([]string, bool) {
	raw, ok := p.Extra[name]
	if !ok {
		return nil, false
	}
	var s []string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return s, true
}

// MemoryField parses the named Extra key as a human memory size
// ("512m", "2g", or plain bytes), the format the orchestrator uses for
// memory_request/memory_limit.
func (p *Payload) MemoryField(name string) (int64, bool, error) {
	s, ok := p.StringField(name)
	if !ok {
		if n, okInt := p.IntField(name); okInt {
			return int64(n), true, nil
		}
		return 0, false, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, true, agenterr.Wrap(agenterr.KindConfigJSONMalformed, "configjson.MemoryField", name+"="+s, err)
	}
	return n, true, nil
}

// FileNames returns the payload's file names sorted, with any that
// escape the data directory rejected.
func (p *Payload) FileNames() ([]string, error) {
	names := make([]string, 0, len(p.Files))
	for name := range p.Files {
		clean := filepath.Clean(name)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			return nil, agenterr.New(agenterr.KindConfigJSONMalformed, "configjson.FileNames",
				"file name escapes the daemon directory: "+name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
