package schema

import "github.com/brojonat/ledgerwire/service/wire"

// FieldInfo is the listing form of a field.
type FieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

// VariantInfo is the listing form of a registered shape.
type VariantInfo struct {
	Tag    uint64      `json:"tag"`
	Name   string      `json:"name"`
	Fields []FieldInfo `json:"fields"`
}

// Info describes a catalog entry for listings.
type Info struct {
	Name     string        `json:"name"`
	Family   string        `json:"family,omitempty"`
	Variants []VariantInfo `json:"variants,omitempty"`
	Fields   []FieldInfo   `json:"fields,omitempty"`
}

// Describe returns the listing of e.
func (e Entry) Describe() Info {
	info := Info{Name: e.Name}
	if e.IsRecord() {
		info.Fields = fieldInfos(e.fields)
		return info
	}

	info.Family = e.Family.Name()
	for _, s := range e.Family.Shapes() {
		info.Variants = append(info.Variants, VariantInfo{
			Tag:    uint64(s.Tag),
			Name:   s.Name,
			Fields: fieldInfos(s.Fields),
		})
	}
	return info
}

// DescribeAll lists every catalog entry.
func DescribeAll() []Info {
	entries := All()
	out := make([]Info, len(entries))
	for i, e := range entries {
		out[i] = e.Describe()
	}
	return out
}

func fieldInfos(fields []wire.Field) []FieldInfo {
	out := make([]FieldInfo, len(fields))
	for i, f := range fields {
		out[i] = FieldInfo{Name: f.Name, Type: f.Describe(), Optional: f.Optional}
	}
	return out
}
