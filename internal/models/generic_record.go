package models

// GenericRecord is a map backed Record. It is what the HTTP trigger and the
// CLI build from a JSON envelope, and what tests use as a local model.
type GenericRecord struct {
	Type       string
	ID         string
	Fields     map[string]any
	Relations  map[string]*GenericRecord
	Definition *SyncDefinition
}

var _ Record = (*GenericRecord)(nil)

func (r *GenericRecord) LocalType() string { return r.Type }

func (r *GenericRecord) LocalID() string { return r.ID }

func (r *GenericRecord) Field(name string) (any, bool) {
	if name == "id" {
		if v, ok := r.Fields[name]; ok {
			return v, true
		}
		return r.ID, true
	}
	v, ok := r.Fields[name]
	return v, ok
}

func (r *GenericRecord) Related(accessor string) (Record, bool) {
	rel, ok := r.Relations[accessor]
	if !ok || rel == nil {
		return nil, false
	}
	return rel, true
}

func (r *GenericRecord) SyncDefinition() *SyncDefinition { return r.Definition }

// RecordEnvelope is the wire form of a GenericRecord.
type RecordEnvelope struct {
	Type      string                     `json:"type"`
	ID        string                     `json:"id"`
	Fields    map[string]any             `json:"fields"`
	Relations map[string]*RecordEnvelope `json:"relations,omitempty"`
}

// ToRecord converts the envelope into a GenericRecord, attaching sync
// definitions by local type through lookup. Types without a definition get
// a nil Definition.
func (e *RecordEnvelope) ToRecord(lookup func(localType string) *SyncDefinition) *GenericRecord {
	if e == nil {
		return nil
	}
	rec := &GenericRecord{
		Type:   e.Type,
		ID:     e.ID,
		Fields: e.Fields,
	}
	if lookup != nil {
		rec.Definition = lookup(e.Type)
	}
	if len(e.Relations) > 0 {
		rec.Relations = make(map[string]*GenericRecord, len(e.Relations))
		for name, rel := range e.Relations {
			rec.Relations[name] = rel.ToRecord(lookup)
		}
	}
	return rec
}
