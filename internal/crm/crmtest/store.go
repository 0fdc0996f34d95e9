package crmtest

import (
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// collection keeps the records of one resource as raw JSON objects.
type collection struct {
	nextID  int64
	ids     []int64
	records map[int64][]byte
	// fields matched by the keyword filter
	search []string
}

func newCollection(search ...string) *collection {
	return &collection{records: map[int64][]byte{}, search: search}
}

func (c *collection) insert(record []byte) ([]byte, error) {
	c.nextID++
	id := c.nextID
	record, err := sjson.SetBytes(record, "id", id)
	if err != nil {
		return nil, err
	}
	c.ids = append(c.ids, id)
	c.records[id] = record
	return record, nil
}

func (c *collection) get(id int64) ([]byte, bool) {
	r, ok := c.records[id]
	return r, ok
}

// find returns the id of the first record whose field equals value.
func (c *collection) find(field string, value int64) (int64, bool) {
	for _, id := range c.ids {
		if gjson.GetBytes(c.records[id], field).Int() == value {
			return id, true
		}
	}
	return 0, false
}

func (c *collection) replace(id int64, record []byte) ([]byte, error) {
	record, err := sjson.SetBytes(record, "id", id)
	if err != nil {
		return nil, err
	}
	c.records[id] = record
	return record, nil
}

func (c *collection) delete(id int64) bool {
	if _, ok := c.records[id]; !ok {
		return false
	}
	delete(c.records, id)
	c.ids = slices.DeleteFunc(c.ids, func(v int64) bool { return v == id })
	return true
}

// page returns the newest-first slice of matching records and the number of
// matches.
func (c *collection) page(keyword string, page, size int) ([][]byte, int) {
	keyword = strings.ToLower(keyword)
	var matched [][]byte
	for i := len(c.ids) - 1; i >= 0; i-- {
		r := c.records[c.ids[i]]
		if keyword == "" || c.matches(r, keyword) {
			matched = append(matched, r)
		}
	}
	start := (page - 1) * size
	if start >= len(matched) {
		return nil, len(matched)
	}
	end := min(start+size, len(matched))
	return matched[start:end], len(matched)
}

func (c *collection) matches(record []byte, keyword string) bool {
	for _, f := range c.search {
		if strings.Contains(strings.ToLower(gjson.GetBytes(record, f).String()), keyword) {
			return true
		}
	}
	return false
}

func (c *collection) count() int {
	return len(c.ids)
}

func joinArray(records [][]byte) []byte {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = string(r)
	}
	return []byte("[" + strings.Join(parts, ",") + "]")
}
