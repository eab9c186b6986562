package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"strings"
)

// StringList is a list of strings stored as a JSON array column.
// When decoded from model output a bare string becomes a one-item list and
// non-string items keep their JSON text.
type StringList []string

// Value implements driver.Valuer for JSONB
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Scan implements sql.Scanner for JSONB
func (l *StringList) Scan(value interface{}) error {
	data, ok := jsonBytes(value)
	if !ok {
		*l = make(StringList, 0)
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// UnmarshalJSON implements json.Unmarshaler
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if data[0] != '[' {
		*l = appendItem(StringList{}, data)
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	list := make(StringList, 0, len(items))
	for _, item := range items {
		list = appendItem(list, item)
	}
	*l = list
	return nil
}

func appendItem(list StringList, item json.RawMessage) StringList {
	item = bytes.TrimSpace(item)
	if bytes.Equal(item, []byte("null")) {
		return list
	}
	var text string
	if err := json.Unmarshal(item, &text); err != nil {
		text = string(item)
	}
	if text = strings.TrimSpace(text); text == "" {
		return list
	}
	return append(list, text)
}
