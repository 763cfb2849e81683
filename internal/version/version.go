/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package version

import (
	"strconv"
	"time"
)

const (
	DevelopmentVersion = "dev"
)

// Set at build time through -ldflags.
var (
	ProductVersion = DevelopmentVersion
	CommitHash     = ""
	BuildTimestamp = ""
)

type VersionOutput struct {
	Version    string `json:"version"`
	CommitHash string `json:"commitHash,omitempty"`
	BuildTime  string `json:"buildTimestamp,omitempty"`
}

func Version() VersionOutput {
	buildTime := ""
	if BuildTimestamp != "" {
		// The build may stamp either a Unix timestamp or an RFC 3339 string.
		if parsedTimestamp, err := strconv.ParseInt(BuildTimestamp, 10, 64); err == nil {
			buildTime = time.Unix(parsedTimestamp, 0).UTC().Format(time.RFC3339)
		} else if maybeTime, timeErr := time.Parse(time.RFC3339, BuildTimestamp); timeErr == nil {
			buildTime = maybeTime.Format(time.RFC3339)
		}
	}

	productVersion := ProductVersion
	if productVersion == "" {
		productVersion = DevelopmentVersion
	}

	return VersionOutput{
		Version:    productVersion,
		CommitHash: CommitHash,
		BuildTime:  buildTime,
	}
}
