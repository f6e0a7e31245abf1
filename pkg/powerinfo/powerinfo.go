// Package powerinfo reports whether the node runs from mains power or a
// battery pack.
package powerinfo

import (
	"math"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var getAll = battery.GetAll

// Read returns the current power status. A node without any readable
// battery is reported as mains powered.
func Read() (Status, error) {
	bats, err := getAll()
	if err != nil && len(bats) == 0 {
		logrus.WithError(err).Debug("no battery information, assuming mains power")
		return Status{Source: SourceAC}, nil
	}

	st := Status{Source: SourceAC}
	for i, b := range bats {
		if b == nil {
			logrus.WithField("index", i).Debug("skipping unreadable battery")
			continue
		}
		st.Batteries = append(st.Batteries, convert(b))
	}
	if len(bats) > 0 && len(st.Batteries) == 0 {
		if err == nil {
			err = pkgerrors.New("no readable battery")
		}
		return Status{}, pkgerrors.Wrap(err, "failed to read battery")
	}

	for _, b := range st.Batteries {
		if b.State == "Discharging" {
			st.Source = SourceBattery
		}
	}
	return st, nil
}

func convert(b *battery.Battery) Battery {
	out := Battery{
		State:      b.State.String(),
		Current:    b.Current,
		Full:       b.Full,
		Design:     b.Design,
		ChargeRate: b.ChargeRate,
		Voltage:    b.Voltage,
	}
	if out.State == "Discharging" {
		out.ChargeRate = -math.Abs(out.ChargeRate)
	}
	if b.Full > 0 {
		out.Percent = math.Round(b.Current/b.Full*1000) / 10
	}
	return out
}
