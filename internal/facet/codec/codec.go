// Package codec maps a FilterSelection to flat query parameters and back.
//
// Wire shape: one parameter per dimension. Multi-select values are sorted bucket keys joined
// by commas, single-select values a single key. "sort" is omitted for relevance and "q" when
// empty. Decoding never fails; anything that is not a taxonomy key is dropped.
package codec

import (
	"net/url"
	"slices"
	"strings"

	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/taxonomy"
)

const (
	ParamQuery = "q"
	ParamSort  = "sort"
)

const listSep = ","

type Params map[string]string

// Anomaly records one value dropped during decode
type Anomaly struct {
	Param string
	Value string
}

func Encode(sel selection.FilterSelection) Params {
	out := Params{}
	for _, id := range sel.Dimensions() {
		d := taxonomy.MustLookup(id)
		keys := sel.Active(id)
		if len(keys) == 0 {
			continue
		}
		if d.Mode == taxonomy.Single {
			out[d.Param] = string(keys[0])
			continue
		}
		raw := make([]string, len(keys))
		for i, k := range keys {
			raw[i] = string(k)
		}
		slices.Sort(raw)
		out[d.Param] = strings.Join(raw, listSep)
	}
	if o := sel.Sort(); o != selection.DefaultSort {
		out[ParamSort] = string(o)
	}
	if q := strings.TrimSpace(sel.Query()); q != "" {
		out[ParamQuery] = q
	}
	return out
}

func Decode(p Params) selection.FilterSelection {
	sel, _ := DecodeWithAnomalies(p)
	return sel
}

// DecodeWithAnomalies is Decode plus the list of values it dropped, for logging and metrics
func DecodeWithAnomalies(p Params) (selection.FilterSelection, []Anomaly) {
	sel := selection.New()
	var anomalies []Anomaly

	for _, d := range taxonomy.All() {
		raw, ok := p[d.Param]
		if !ok {
			continue
		}
		picked := false
		for _, tok := range splitList(raw) {
			key, valid := parseKey(d, tok)
			if !valid {
				anomalies = append(anomalies, Anomaly{Param: d.Param, Value: tok})
				continue
			}
			if d.Mode == taxonomy.Single && picked {
				if key != sel.Active(d.ID)[0] {
					anomalies = append(anomalies, Anomaly{Param: d.Param, Value: tok})
				}
				continue
			}
			next, err := sel.With(d.ID, key)
			if err != nil {
				anomalies = append(anomalies, Anomaly{Param: d.Param, Value: tok})
				continue
			}
			sel = next
			picked = true
		}
	}

	if raw, ok := p[ParamSort]; ok {
		o, valid := selection.ParseSort(raw)
		if !valid {
			anomalies = append(anomalies, Anomaly{Param: ParamSort, Value: raw})
		}
		sel = sel.WithSort(o)
	}
	if q, ok := p[ParamQuery]; ok {
		sel = sel.WithQuery(q)
	}
	return sel, anomalies
}

// EncodeValues renders the selection as url.Values with one value per parameter
func EncodeValues(sel selection.FilterSelection) url.Values {
	out := url.Values{}
	for k, v := range Encode(sel) {
		out.Set(k, v)
	}
	return out
}

// DecodeValues accepts repeated parameters: repeats of a multi-select parameter are merged,
// a single-select parameter keeps its first valid key.
func DecodeValues(v url.Values) selection.FilterSelection {
	sel, _ := DecodeValuesWithAnomalies(v)
	return sel
}

func DecodeValuesWithAnomalies(v url.Values) (selection.FilterSelection, []Anomaly) {
	return DecodeWithAnomalies(Flatten(v))
}

// Flatten joins repeated values with commas. The query text keeps only its first value.
func Flatten(v url.Values) Params {
	p := make(Params, len(v))
	for k, vals := range v {
		if len(vals) == 0 {
			continue
		}
		if k == ParamQuery || k == ParamSort {
			p[k] = vals[0]
			continue
		}
		p[k] = strings.Join(vals, listSep)
	}
	return p
}

// QueryString renders a shareable query string
func QueryString(sel selection.FilterSelection) string {
	return EncodeValues(sel).Encode()
}

func splitList(raw string) []string {
	parts := strings.Split(raw, listSep)
	out := parts[:0]
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseKey(d *taxonomy.Dimension, tok string) (taxonomy.BucketKey, bool) {
	if d.ID == taxonomy.Near {
		c, b, ok := taxonomy.SplitProximityKey(tok)
		if !ok {
			return "", false
		}
		key := taxonomy.ProximityKey(c, b)
		return key, d.Has(key)
	}
	key := taxonomy.BucketKey(tok)
	return key, d.Has(key)
}
