package search

// value is one pre-normalised searchable string.
type value struct {
	key   string
	runes []rune
	norm  float64
}

// indexEntry holds every searchable value of one record.
type indexEntry struct {
	record *Record
	values map[Field][]value
}

// Index is an immutable, pre-processed view of a record set. It is safe for
// concurrent use once built.
type Index struct {
	entries []indexEntry
	weights map[Field]float64
	opts    Options
}

// NewIndex pre-processes records for matching. Building is O(total text);
// the index keeps pointers to the records, so they must not change while the
// index is in use. Records are searched in the order given.
func NewIndex(records []*Record, opts Options) *Index {
	opts = opts.withDefaults()
	idx := &Index{
		entries: make([]indexEntry, 0, len(records)),
		weights: opts.normalizedWeights(),
		opts:    opts,
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		idx.entries = append(idx.entries, buildEntry(rec))
	}
	return idx
}

func buildEntry(rec *Record) indexEntry {
	entry := indexEntry{
		record: rec,
		values: make(map[Field][]value, len(Fields)),
	}
	add := func(f Field, key, text string) {
		if text == "" {
			return
		}
		entry.values[f] = append(entry.values[f], value{
			key:   key,
			runes: normalize(text),
			norm:  fieldNorm(text),
		})
	}
	add(FieldTitle, string(FieldTitle), rec.Title)
	add(FieldBody, string(FieldBody), rec.Body)
	add(FieldCategory, string(FieldCategory), rec.Category)
	for i, tag := range rec.Tags {
		add(FieldTags, TagKey(i), tag)
	}
	return entry
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Options returns the options the index was built with.
func (idx *Index) Options() Options {
	return idx.opts
}

// All returns every record in index order with no score or spans. It is the
// listing shown for an empty query.
func (idx *Index) All() []MatchResult {
	if idx == nil {
		return nil
	}
	out := make([]MatchResult, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = MatchResult{Record: e.record}
	}
	return out
}
