package main

import (
	"context"
	"errors"
	"flag"
	"io"

	"github.com/iliyamo/ppv-access/internal/geo"
)

type options struct {
	api        string
	event      string
	email      string
	checkout   string
	bypass     string
	lat        float64
	lng        float64
	latSet     bool
	lngSet     bool
	noLocation bool
}

var errUsage = errors.New("usage: viewer -event <id> [-email a@b.c] [-lat .. -lng ..]")

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("viewer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.api, "api", envOr("PPV_API", "http://127.0.0.1:8080"), "access service base URL")
	fs.StringVar(&o.event, "event", "", "event id (required)")
	fs.StringVar(&o.email, "email", "", "purchase email")
	fs.StringVar(&o.checkout, "checkout", "", "payment checkout session id")
	fs.StringVar(&o.bypass, "bypass", "", "crew bypass token")
	fs.Float64Var(&o.lat, "lat", 0, "viewer latitude; omit with -lng to send no location")
	fs.Float64Var(&o.lng, "lng", 0, "viewer longitude")
	fs.BoolVar(&o.noLocation, "no-location", false, "send no location, as when permission is denied")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "lat":
			o.latSet = true
		case "lng":
			o.lngSet = true
		}
	})
	if o.event == "" {
		return o, errUsage
	}
	if o.latSet != o.lngSet {
		return o, errors.New("-lat and -lng must be given together")
	}
	return o, nil
}

// location returns nil when the viewer has no position to report.  A
// zero coordinate is only sent when it was asked for.
func (o options) location() geo.LocationSource {
	if o.noLocation || !o.latSet || !o.lngSet {
		return nil
	}
	p := geo.Point{Lat: o.lat, Lng: o.lng}
	return geo.LocationSourceFunc(func(context.Context) (geo.Point, error) { return p, nil })
}
