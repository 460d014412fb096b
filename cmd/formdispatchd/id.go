package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xraph/formdispatch/id"
)

func idCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "id", Short: "Decode and build response identities"}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <id>",
		Short: "Print the shard and sequence of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := id.Parse(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:       %s\nshard:    %d\nsequence: %d\nhex:      %#016x\n",
				i, i.Shard(), i.Sequence(), uint64(i))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pack <shard> <sequence>",
		Short: "Print the identity of a shard and sequence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := packArgs(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i.String())
			return nil
		},
	})
	return cmd
}

func packArgs(shardArg, seqArg string) (id.ID, error) {
	shard, err := strconv.ParseUint(shardArg, 10, 64)
	if err != nil {
		return id.Nil, fmt.Errorf("shard %q: %w", shardArg, err)
	}
	seq, err := strconv.ParseUint(seqArg, 10, 64)
	if err != nil {
		return id.Nil, fmt.Errorf("sequence %q: %w", seqArg, err)
	}
	return id.PackChecked(shard, seq)
}
