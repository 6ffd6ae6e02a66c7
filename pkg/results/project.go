package results

import (
	"github.com/pay-theory/ecsbridge/pkg/core"
	"github.com/pay-theory/ecsbridge/pkg/fields"
)

// Project builds output records holding exactly the requested fields. Fields a record does not
// carry are present with a nil value.
func Project(records []core.Record, fieldNames []string, aliases *fields.AliasRegistry) []core.Record {
	out := make([]core.Record, len(records))
	for i, record := range records {
		projected := make(core.Record, len(fieldNames))
		for _, f := range fieldNames {
			v, _ := Lookup(record, f, aliases)
			projected[f] = v
		}
		out[i] = projected
	}
	return out
}

// FieldsOf returns the field list used when none was requested: the sorted keys of the first record
func FieldsOf(records []core.Record) []string {
	if len(records) == 0 {
		return []string{}
	}
	return records[0].Keys()
}
