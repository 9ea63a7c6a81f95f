// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package client provides the operation-client runtime that generated
// service clients build on: an endpoint plus a [corehttp.Pipeline] assembled
// from a standard set of options, with JSON helpers, list paging and
// long-running-operation support.
//
// # Basic usage
//
//	c, err := client.New("https://service.example.com",
//		client.WithCredential(cred, "https://service.example.com/.default"),
//		client.WithLogger(slog.Default()),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	req, err := c.NewRequest(ctx, http.MethodGet, "/widgets/w1")
//	if err != nil {
//		log.Fatal(err)
//	}
//	resp, err := c.Do(ctx, req, http.StatusOK)
//	if err != nil {
//		log.Fatal(err)
//	}
//	var w Widget
//	if err := client.DecodeJSON(resp, &w); err != nil {
//		log.Fatal(err)
//	}
//
// # Paging
//
//	pager := client.NewListPager[Widget](c, "/widgets")
//	for w, err := range paging.All(ctx, pager, func(p client.ListPage[Widget]) []Widget { return p.Value }) {
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(w.Name)
//	}
//
// # Long-running operations
//
//	resp, err := c.Do(ctx, createReq, http.StatusAccepted)
//	if err != nil {
//		log.Fatal(err)
//	}
//	p, err := client.NewPoller[Widget](c, resp, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	w, err := p.PollUntilDone(ctx)
package client
