// Package docker runs disposable PostgreSQL instances for development and
// testing workflows.
//
// The dev command uses it to stand up a database, install the control
// schema, and apply every revision, giving a local environment that matches
// what the migrations produce in production. Containers can be named for
// reuse so repeated dev sessions keep their data.
//
// # Usage Example
//
//	import (
//		"context"
//		"github.com/stagehand/stagehand/pkg/docker"
//		"github.com/stagehand/stagehand/pkg/postgres"
//	)
//
//	container := docker.NewWithOptions(docker.Options{Version: "16"})
//
//	ctx := context.Background()
//	if err := container.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer container.Stop(ctx)
//
//	url, _ := container.ConnectionString(ctx)
//	client, _ := postgres.Connect(ctx, url)
//	defer client.Close()
package docker
