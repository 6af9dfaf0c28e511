package binder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type jobFields Job

var jobKeys = []string{"downloadUrl", "imgClasses", "pdfSaveRootPath", "isDownloaded", "pdfSavePath"}

// MarshalJSON writes the known fields followed by any preserved extra keys.
func (j Job) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(jobFields(j), j.Extra, jobKeys)
}

// UnmarshalJSON reads the known fields and keeps every other key in Extra.
func (j *Job) UnmarshalJSON(data []byte) error {
	var f jobFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := unknownKeys(data, jobKeys)
	if err != nil {
		return err
	}
	f.Extra = extra
	*j = Job(f)
	return nil
}

type collectionFields JobCollection

var collectionKeys = []string{"PdfSaveRootPath", "DownloadSrcs"}

// MarshalJSON writes the known fields followed by any preserved extra keys.
func (c JobCollection) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(collectionFields(c), c.Extra, collectionKeys)
}

// UnmarshalJSON reads the known fields and keeps every other key in Extra.
func (c *JobCollection) UnmarshalJSON(data []byte) error {
	var f collectionFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := unknownKeys(data, collectionKeys)
	if err != nil {
		return err
	}
	f.Extra = extra
	*c = JobCollection(f)
	return nil
}

// unknownKeys returns the members of the object in data that match none of
// known. encoding/json matches field names case-insensitively, so this does too.
func unknownKeys(data []byte, known []string) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for key := range raw {
		for _, k := range known {
			if strings.EqualFold(key, k) {
				delete(raw, key)
				break
			}
		}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// marshalWithExtra encodes v without HTML escaping and appends extra in key
// order. Keys that collide with known fields are dropped.
func marshalWithExtra(v any, extra map[string]json.RawMessage, known []string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	base := bytes.TrimSpace(buf.Bytes())
	if len(extra) == 0 {
		return base, nil
	}
	if len(base) < 2 || base[len(base)-1] != '}' {
		return nil, fmt.Errorf("encode %T: not an object", v)
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !isKnown(k, known) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := bytes.NewBuffer(append([]byte(nil), base[:len(base)-1]...))
	needComma := len(base) > 2
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		if needComma {
			out.WriteByte(',')
		}
		needComma = true
		out.Write(name)
		out.WriteByte(':')
		out.Write(extra[k])
	}
	out.WriteByte('}')
	return out.Bytes(), nil
}

func isKnown(key string, known []string) bool {
	for _, k := range known {
		if strings.EqualFold(key, k) {
			return true
		}
	}
	return false
}
