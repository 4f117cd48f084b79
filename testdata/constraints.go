package testdata

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// maxBound is the largest magnitude accepted for min and max: every integer
// up to it is exact in a float64 and in JSON consumers
const maxBound = 1 << 53

// Constraints are the parsed form of a field's constraint string, a
// comma-separated list of key=value pairs:
//
//	min=18,max=65
//	values=admin|editor|viewer
//	length=12,prefix=ACC-
//	nullable=0.1
type Constraints struct {
	Min      *float64
	Max      *float64
	MinDate  *time.Time
	MaxDate  *time.Time
	Length   int
	Prefix   string
	Values   []string
	Nullable float64 // probability of a null value
}

// ParseConstraints parses the constraint string for a field of type ft
func ParseConstraints(ft FieldType, raw string) (Constraints, error) {
	var c Constraints
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return c, nil
	}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return c, fmt.Errorf("constraint %q must be key=value", part)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "min", "max":
			if err := c.setBound(ft, key, value); err != nil {
				return c, err
			}
		case "length":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > 10000 {
				return c, fmt.Errorf("length must be an integer between 1 and 10000, got %q", value)
			}
			c.Length = n
		case "prefix":
			c.Prefix = value
		case "values":
			for _, v := range strings.Split(value, "|") {
				if v = strings.TrimSpace(v); v != "" {
					c.Values = append(c.Values, v)
				}
			}
		case "nullable":
			p, err := parseNullable(value)
			if err != nil {
				return c, err
			}
			c.Nullable = p
		default:
			return c, fmt.Errorf("unknown constraint %q", key)
		}
	}

	if err := c.check(ft); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Constraints) setBound(ft FieldType, key, value string) error {
	if ft == FieldDate || ft == FieldDateTime {
		t, err := time.Parse(dateLayout, value)
		if err != nil {
			return fmt.Errorf("%s must be a date (YYYY-MM-DD), got %q", key, value)
		}
		if key == "min" {
			c.MinDate = &t
		} else {
			c.MaxDate = &t
		}
		return nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%s must be a finite number, got %q", key, value)
	}
	if math.Abs(f) > maxBound {
		return fmt.Errorf("%s must be between -%d and %d, got %q", key, int64(maxBound), int64(maxBound), value)
	}
	if key == "min" {
		c.Min = &f
	} else {
		c.Max = &f
	}
	return nil
}

func parseNullable(value string) (float64, error) {
	switch strings.ToLower(value) {
	case "true", "yes":
		return 0.1, nil
	case "false", "no":
		return 0, nil
	}
	p, err := strconv.ParseFloat(value, 64)
	if err != nil || p < 0 || p > 1 {
		return 0, fmt.Errorf("nullable must be true, false or a probability between 0 and 1, got %q", value)
	}
	return p, nil
}

func (c Constraints) check(ft FieldType) error {
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return fmt.Errorf("min %v is greater than max %v", *c.Min, *c.Max)
	}
	if c.MinDate != nil && c.MaxDate != nil && c.MinDate.After(*c.MaxDate) {
		return fmt.Errorf("min date %s is after max date %s", c.MinDate.Format(dateLayout), c.MaxDate.Format(dateLayout))
	}
	if ft == FieldEnum && len(c.Values) == 0 {
		return fmt.Errorf("enum fields require values=a|b|c")
	}
	if ft == FieldInteger && c.Min != nil && c.Max != nil && intBounds(c) == nil {
		return fmt.Errorf("no integer lies between min %v and max %v", *c.Min, *c.Max)
	}
	return nil
}

// intBounds returns the inclusive integer range allowed by c, or nil when it
// is empty
func intBounds(c Constraints) *[2]int64 {
	lo, hi := int64(0), int64(1000)
	if c.Min != nil {
		lo = int64(math.Ceil(*c.Min))
	}
	if c.Max != nil {
		hi = int64(math.Floor(*c.Max))
	}
	if c.Min != nil && c.Max == nil && lo > hi {
		hi = lo + 1000
	}
	if c.Max != nil && c.Min == nil && lo > hi {
		lo = hi - 1000
	}
	if lo > hi {
		return nil
	}
	return &[2]int64{lo, hi}
}
