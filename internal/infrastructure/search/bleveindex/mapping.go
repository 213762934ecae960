// Package bleveindex implements the search index on embedded bleve indexes,
// one index per entity type.
package bleveindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/metadata"
)

// sourceField holds the record JSON. It is stored but not indexed.
const sourceField = "@source"

// NewMapping derives the index mapping of an entity from its definition.
// Identities and references are exact-match keywords, so "id:42" and
// "saleId:7" only hit that document.
func NewMapping(def metadata.EntityDef) mapping.IndexMapping {
	doc := bleve.NewDocumentStaticMapping()

	for _, f := range def.Fields {
		var fm *mapping.FieldMapping
		switch f.Type {
		case metadata.TypeID, metadata.TypeReference:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = keyword.Name
		case metadata.TypeInteger, metadata.TypeMoney:
			fm = bleve.NewNumericFieldMapping()
		case metadata.TypeDate, metadata.TypeDateTime:
			fm = bleve.NewDateTimeFieldMapping()
		default:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = standard.Name
		}
		fm.Store = false
		doc.AddFieldMappingsAt(f.Name, fm)
	}

	src := bleve.NewTextFieldMapping()
	src.Index = false
	src.Store = true
	src.IncludeInAll = false
	src.IncludeTermVectors = false
	doc.AddFieldMappingsAt(sourceField, src)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	im.IndexDynamic = false
	im.StoreDynamic = false
	return im
}

// toDocument turns a record into the indexed document. Only fields declared
// in def are indexed; the full record is kept in sourceField.
func toDocument(def metadata.EntityDef, rec any) (string, map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s document: %w", def.Name, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return "", nil, fmt.Errorf("decode %s document: %w", def.Name, err)
	}

	docID := ""
	doc := make(map[string]any, len(def.Fields)+1)
	for _, f := range def.Fields {
		v, ok := values[f.Name]
		if !ok || v == nil {
			continue
		}
		converted, err := convert(f, v)
		if err != nil {
			return "", nil, fmt.Errorf("%s.%s: %w", def.Name, f.Name, err)
		}
		if f.Type == metadata.TypeID {
			docID = converted.(string)
		}
		doc[f.Name] = converted
	}
	if docID == "" {
		return "", nil, fmt.Errorf("%s document has no id", def.Name)
	}
	doc[sourceField] = string(raw)

	return docID, doc, nil
}

func convert(f metadata.FieldDef, v any) (any, error) {
	switch f.Type {
	case metadata.TypeID, metadata.TypeReference:
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", v)
		}
		return n.String(), nil
	case metadata.TypeInteger, metadata.TypeMoney:
		switch n := v.(type) {
		case json.Number:
			return n.Float64()
		case string: // decimal amounts are encoded as strings
			return strconv.ParseFloat(n, 64)
		}
		return nil, fmt.Errorf("expected number, got %T", v)
	case metadata.TypeDate:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected date string, got %T", v)
		}
		d, err := entity.ParseDate(s)
		if err != nil {
			return nil, err
		}
		return d.Time, nil
	case metadata.TypeDateTime:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected timestamp string, got %T", v)
		}
		return time.Parse(time.RFC3339Nano, s)
	default:
		return v, nil
	}
}
