package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/client"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

var convertCmd = &cobra.Command{
	Use:   "convert <file.pdf>",
	Short: "Upload a PDF and wait for its XML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		structure, _ := cmd.Flags().GetString("structure")
		tags, _ := cmd.Flags().GetStringSlice("tags")
		out, _ := cmd.Flags().GetString("out")
		noWait, _ := cmd.Flags().GetBool("no-wait")

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ctx := cmd.Context()
		res, err := c.Submit(ctx, filepath.Base(args[0]), f, models.StructureType(structure), tags)
		if err != nil {
			return err
		}
		if res.Result != nil {
			return writeXML(out, res.Result.XML)
		}
		if noWait {
			return output(models.SubmitResponse{ConversionID: res.ConversionID, Status: res.Status})
		}

		tracker := client.NewTracker(c)
		tracker.OnUpdate = func(st models.ConversionStatus) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", res.ConversionID, st)
		}
		final, err := tracker.Wait(ctx, res.ConversionID)
		if err != nil {
			return err
		}
		switch final.Outcome {
		case client.OutcomeCompleted:
			return writeXML(out, final.Conversion.Conversion.XMLContent)
		case client.OutcomeTimedOut:
			return fmt.Errorf("%s: %w (check later with: pdf2xml status %s)", res.ConversionID, final.Err, res.ConversionID)
		default:
			return fmt.Errorf("%s: conversion failed: %s", res.ConversionID, final.Message)
		}
	},
}

func writeXML(path, xml string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprint(os.Stdout, xml)
		return err
	}
	return os.WriteFile(path, []byte(xml), 0o644)
}

// statusView is a conversion without its XML.
type statusView struct {
	models.Conversion
	FullPageCount int `json:"full_page_count"`
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show a conversion's status and statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		resp, err := c.Get(cmd.Context(), args[0], 0)
		if err != nil {
			return err
		}
		return output(statusView{Conversion: resp.Conversion.Conversion, FullPageCount: resp.FullPageCount})
	},
}

var pageCmd = &cobra.Command{
	Use:   "page <id> <n>",
	Short: "Print one page of a conversion as XML",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid page number %q", args[1])
		}
		resp, err := c.Get(cmd.Context(), args[0], n)
		if err != nil {
			return err
		}
		if resp.Page != n {
			fmt.Fprintf(os.Stderr, "page %d is outside 1..%d; showing the whole document\n", n, resp.FullPageCount)
		}
		return writeXML("", resp.Conversion.XMLContent)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <id> <query>",
	Short: "Search a conversion's XML",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		page, _ := cmd.Flags().GetInt("page")
		current, _ := cmd.Flags().GetInt("current")
		spans, _ := cmd.Flags().GetBool("spans")
		highlight, _ := cmd.Flags().GetBool("highlight")

		resp, err := c.Search(cmd.Context(), args[0], args[1], page, current)
		if err != nil {
			return err
		}
		if highlight {
			renderSpans(os.Stdout, resp.Spans)
			fmt.Fprintf(os.Stderr, "%d matches, current %d\n", resp.Count, resp.Current)
			return nil
		}
		if !spans {
			resp.Spans = nil
		}
		return output(resp)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		params := url.Values{}
		for _, name := range []string{"status", "search", "structure_type", "sort_by", "sort_dir", "date_from", "date_to"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				params.Set(name, v)
			}
		}
		if v, _ := cmd.Flags().GetInt("page"); v > 0 {
			params.Set("page", strconv.Itoa(v))
		}
		if v, _ := cmd.Flags().GetInt("per-page"); v > 0 {
			params.Set("per_page", strconv.Itoa(v))
		}
		if v, _ := cmd.Flags().GetBool("has-tables"); v {
			params.Set("has_tables", "true")
		}

		resp, err := c.List(cmd.Context(), params)
		if err != nil {
			return err
		}
		return output(resp)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download a conversion's XML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		page, _ := cmd.Flags().GetInt("page")
		out, _ := cmd.Flags().GetString("out")
		data, err := c.Download(cmd.Context(), args[0], page)
		if err != nil {
			return err
		}
		return writeXML(out, string(data))
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.Delete(cmd.Context(), args[0])
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show your conversion summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		stats, err := c.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return output(stats)
	},
}

func init() {
	convertCmd.Flags().String("structure", string(models.DefaultStructureType), "structure type: basic, enhanced or full")
	convertCmd.Flags().StringSlice("tags", nil, "tags to attach")
	convertCmd.Flags().String("out", "", "write XML to this file instead of stdout")
	convertCmd.Flags().Bool("no-wait", false, "print the conversion ID instead of waiting")

	searchCmd.Flags().Int("page", 0, "search only this page")
	searchCmd.Flags().Int("current", -1, "select this match (wraps around)")
	searchCmd.Flags().Bool("spans", false, "include highlight spans")
	searchCmd.Flags().Bool("highlight", false, "print the text with matches colored")

	for _, name := range []string{"status", "search", "structure_type", "sort_by", "sort_dir", "date_from", "date_to"} {
		listCmd.Flags().String(name, "", "filter or sort by "+name)
	}
	listCmd.Flags().Int("page", 1, "page number")
	listCmd.Flags().Int("per-page", 10, "items per page")
	listCmd.Flags().Bool("has-tables", false, "only conversions with tables")

	downloadCmd.Flags().Int("page", 0, "download only this page")
	downloadCmd.Flags().String("out", "", "write to this file instead of stdout")

	rootCmd.AddCommand(convertCmd, statusCmd, pageCmd, searchCmd, listCmd, downloadCmd, deleteCmd, statsCmd)
}
