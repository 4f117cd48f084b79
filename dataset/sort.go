package dataset

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// SortBy returns a copy of ds stably sorted on field. Numbers compare
// numerically, strings lexically, booleans false before true and dates
// chronologically. Missing and null values always sort last, whatever the
// direction. Values of different kinds group by kind: numbers, strings,
// booleans, dates, then anything else.
func SortBy(ds Dataset, field string, desc bool) Dataset {
	out := make(Dataset, len(ds))
	copy(out, ds)

	slices.SortStableFunc(out, func(a, b *Record) int {
		av, _ := a.Get(field)
		bv, _ := b.Get(field)

		switch {
		case av == nil && bv == nil:
			return 0
		case av == nil:
			return 1
		case bv == nil:
			return -1
		}

		c := compareValues(av, bv)
		if desc {
			return -c
		}
		return c
	})
	return out
}

// kindRank orders the value kinds SortBy groups on
func kindRank(v any) int {
	if _, _, ok := numberValue(v); ok {
		return 0
	}
	switch v.(type) {
	case string:
		return 1
	case bool:
		return 2
	case time.Time:
		return 3
	}
	return 4
}

func compareValues(a, b any) int {
	if ra, rb := kindRank(a), kindRank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}

	if af, _, ok := numberValue(a); ok {
		bf, _, _ := numberValue(b)
		return cmp.Compare(af, bf)
	}

	switch av := a.(type) {
	case string:
		return strings.Compare(av, b.(string))
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case time.Time:
		return av.Compare(b.(time.Time))
	}
	return 0
}
