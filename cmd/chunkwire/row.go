// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/cockroachdb/chunkwire/row"
	"github.com/cockroachdb/chunkwire/wire"
	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var rowKeyColumns int

var rowCmd = &cobra.Command{
	Use:   "row",
	Short: "encode, decode and hash rows",
}

var rowEncodeCmd = &cobra.Command{
	Use:   "encode <row>...",
	Short: "print the hex wire encoding of rows given in text form",
	Long: `
Rows are written the way they are printed, e.g.

  chunkwire row encode '[0#int64:5 1#string:"abc" 2#null]'
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRowEncode,
}

var rowDecodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "decode hex wire encoded rows into a table of values",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRowDecode,
}

var rowHashCmd = &cobra.Command{
	Use:   "hash <row>...",
	Short: "print the hash and fingerprint of the key columns of rows",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRowHash,
}

func init() {
	rowCmd.AddCommand(rowEncodeCmd, rowDecodeCmd, rowHashCmd)
	rowHashCmd.Flags().IntVarP(
		&rowKeyColumns, "key-columns", "k", 1, "number of leading key columns to hash")
}

func runRowEncode(cmd *cobra.Command, args []string) error {
	for _, arg := range args {
		r, err := row.ParseRow(arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%x\n", wire.EncodeRow(r.Row()))
	}
	return nil
}

func runRowDecode(cmd *cobra.Command, args []string) error {
	tbl := tablewriter.NewWriter(cmd.OutOrStdout())
	tbl.SetHeader([]string{"Row", "ID", "Type", "Value"})
	for i, arg := range args {
		b, err := hex.DecodeString(arg)
		if err != nil {
			return errors.Wrapf(err, "row %d", errors.Safe(i))
		}
		r, err := wire.DecodeRow(b)
		if err != nil {
			return errors.Wrapf(err, "row %d", errors.Safe(i))
		}
		if r.IsNull() {
			tbl.Append([]string{strconv.Itoa(i), "", "", "<null>"})
			continue
		}
		for _, v := range r.Values() {
			tbl.Append([]string{
				strconv.Itoa(i),
				strconv.Itoa(int(v.ID)),
				v.Type.String(),
				valuePayload(v),
			})
		}
	}
	tbl.Render()
	return nil
}

// valuePayload renders the part of the value's text form following the type.
func valuePayload(v row.Value) string {
	s := v.String()
	prefix := fmt.Sprintf("%d#%s", v.ID, v.Type)
	s = s[len(prefix):]
	if len(s) > 0 && s[0] == ':' {
		s = s[1:]
	}
	return s
}

func runRowHash(cmd *cobra.Command, args []string) error {
	if err := row.ValidateKeyColumnCount(rowKeyColumns); err != nil {
		return err
	}
	for _, arg := range args {
		r, err := row.ParseRow(arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s hash=%016x fingerprint=%016x\n", r,
			row.Hash(r.Row(), rowKeyColumns), row.Fingerprint(r.Row(), rowKeyColumns))
	}
	return nil
}
