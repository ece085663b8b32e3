package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"modbot/internal/session"
)

const conversionHistoryKey = "conversion_history"

type unitInfo struct {
	category string
	factor   float64 // multiply to reach the category's base unit
}

// Base units: m, kg, l, m2, m/s, pa, j. Temperature is handled separately.
var units = map[string]unitInfo{
	"km": {"distance", 1000}, "m": {"distance", 1}, "cm": {"distance", 0.01}, "mm": {"distance", 0.001},
	"mi": {"distance", 1609.344}, "ft": {"distance", 0.3048}, "in": {"distance", 0.0254}, "yd": {"distance", 0.9144},

	"t": {"weight", 1000}, "kg": {"weight", 1}, "g": {"weight", 0.001}, "lb": {"weight", 0.45359237}, "oz": {"weight", 0.028349523125},

	"l": {"volume", 1}, "ml": {"volume", 0.001}, "gal": {"volume", 3.785411784}, "floz": {"volume", 0.0295735295625},

	"m2": {"area", 1}, "km2": {"area", 1e6}, "ft2": {"area", 0.09290304}, "mi2": {"area", 2589988.110336},

	"ms": {"speed", 1}, "kmh": {"speed", 1 / 3.6}, "mph": {"speed", 0.44704},

	"pa": {"pressure", 1}, "bar": {"pressure", 1e5}, "psi": {"pressure", 6894.757293168}, "atm": {"pressure", 101325},

	"j": {"energy", 1}, "cal": {"energy", 4.184}, "kwh": {"energy", 3.6e6},

	"celsius": {"temperature", 0}, "fahrenheit": {"temperature", 0}, "kelvin": {"temperature", 0},
}

var unitAliases = map[string]string{
	"kilometers": "km", "kilometres": "km", "meters": "m", "metres": "m", "centimeters": "cm",
	"miles": "mi", "mile": "mi", "feet": "ft", "foot": "ft", "inches": "in", "inch": "in", "yards": "yd",
	"ton": "t", "tons": "t", "kilograms": "kg", "kilos": "kg", "grams": "g", "pounds": "lb", "lbs": "lb", "ounces": "oz",
	"liters": "l", "litres": "l", "milliliters": "ml", "gallons": "gal",
	"km/h": "kmh", "m/s": "ms",
	"c": "celsius", "°c": "celsius", "f": "fahrenheit", "°f": "fahrenheit", "k": "kelvin",
	"joules": "j", "calories": "cal",
}

type convertArgs struct {
	Value     float64 `json:"value" jsonschema:"description=Value to convert"`
	From      string  `json:"from_unit" jsonschema:"description=Source unit such as km or celsius"`
	To        string  `json:"to_unit,omitempty" jsonschema:"description=Target unit; defaults to the user's preferred unit for the category"`
	Precision int     `json:"precision,omitempty" jsonschema:"description=Decimal places (0-10),default=4"`
}

func normalizeUnit(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	if a, ok := unitAliases[u]; ok {
		return a
	}
	return u
}

func convertUnits(ctx context.Context, sc *session.Context, args convertArgs) (string, error) {
	from := normalizeUnit(args.From)
	fi, ok := units[from]
	if !ok {
		return "", fmt.Errorf("unknown unit %q", args.From)
	}

	to := normalizeUnit(args.To)
	if to == "" {
		to = normalizeUnit(sc.Preferences().Units[fi.category])
		if to == "" {
			return "", fmt.Errorf("to_unit is required: no preferred %s unit set", fi.category)
		}
	}
	ti, ok := units[to]
	if !ok {
		return "", fmt.Errorf("unknown unit %q", to)
	}
	if fi.category != ti.category {
		return "", fmt.Errorf("cannot convert %s (%s) to %s (%s)", from, fi.category, to, ti.category)
	}

	var result float64
	if fi.category == "temperature" {
		result = fromKelvin(toKelvin(args.Value, from), to)
	} else {
		result = args.Value * fi.factor / ti.factor
	}

	prec := args.Precision
	if prec < 0 || prec > 10 {
		prec = 4
	}
	line := fmt.Sprintf("%s %s = %s %s", formatFloat(args.Value), from, strconv.FormatFloat(result, 'f', prec, 64), to)

	history, _ := sc.ScratchGet(conversionHistoryKey, []string(nil)).([]string)
	history = append(history, line)
	if len(history) > 20 {
		history = history[len(history)-20:]
	}
	sc.ScratchSet(conversionHistoryKey, history)

	return fmt.Sprintf("%s conversion: %s", fi.category, line), nil
}

func toKelvin(v float64, unit string) float64 {
	switch unit {
	case "celsius":
		return v + 273.15
	case "fahrenheit":
		return (v-32)*5/9 + 273.15
	}
	return v
}

func fromKelvin(k float64, unit string) float64 {
	switch unit {
	case "celsius":
		return k - 273.15
	case "fahrenheit":
		return (k-273.15)*9/5 + 32
	}
	return k
}
