package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hypergrid-io/hypergrid/internal/model"
)

func TestBuildUnmintedOperatorWallet(t *testing.T) {
	g := Build(Input{OwnerNodeID: "alice.os"})
	require.Len(t, g.Nodes, 2)
	require.Equal(t, "ownerNode", g.Nodes[0].Type)
	require.Equal(t, "mintOperatorWalletActionNode", g.Nodes[1].Type)
	require.Len(t, g.Edges, 1)
}

func TestBuildFullGraph(t *testing.T) {
	in := Input{
		OwnerNodeID:        "alice.os",
		OperatorTBA:        "0x1111111111111111111111111111111111111111",
		OperatorEntryName:  "operator.grid-beta.hypr",
		DelegationVerified: true,
		SelectedWalletID:   "0xhot1",
		HotWallets: []model.ManagedWallet{
			{ID: "0xhot1", Name: "primary"},
			{ID: "0xhot2", Name: "secondary"},
		},
		AuthorizedClients: []model.AuthorizedClient{
			{ID: "client-1", HotWallet: "0xhot1", Status: model.ClientActive},
			{ID: "client-2", HotWallet: "0xhot2", Status: model.ClientHalted},
		},
	}

	g := Build(in)

	// owner + operator wallet + 2 hot wallets + 2 clients
	require.Len(t, g.Nodes, 6)
	// owner->operator, operator->hw1, operator->hw2, hw1->client1, hw2->client2
	require.Len(t, g.Edges, 5)

	var sawClient1 bool
	for _, n := range g.Nodes {
		if n.ID == "auth-client-client-1" {
			sawClient1 = true
			require.Equal(t, "0xhot1", n.Data["associated_wallet"])
		}
	}
	require.True(t, sawClient1)
}
