package main

import (
	"context"
	"errors"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/gaugeread/gaugeread/pkg/client"
	"github.com/gaugeread/gaugeread/pkg/version"
)

// newAPIClient connects to --server and warns when the server runs a
// different build.
func newAPIClient(ctx context.Context) *client.Client {
	c := client.NewClient(serverAddr)

	v, err := c.GetVersion(ctx)
	switch {
	case err == nil && v.Version != version.Version:
		logrus.WithFields(logrus.Fields{
			"clientVersion": version.Version,
			"serverVersion": v.Version,
		}).Warn("Version mismatch between client and server. Some commands may not work as expected.")
	case errors.Is(err, client.ErrNotFound):
		logrus.Debug("server does not report its version, it may not be a gaugeread server")
	}

	return c
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
