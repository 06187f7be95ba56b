package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArtifactName(t *testing.T) {
	t.Parallel()

	n := Naming{Owner: "jakefau", Dataset: "dolma_urls"}
	assert.Equal(t, "dolma_urls_extracted_inner_urls_batch_12.parquet", ArtifactName(n, 12))
	assert.Equal(t, "dolma_urls_extracted_inner_urls_batch_1.parquet", ArtifactName(n, 1))
}

func TestRepoID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		naming Naming
		want   string
	}{
		{
			"OwnerAndDataset",
			Naming{Owner: "jakefau", Dataset: "dolma_urls"},
			"jakefau_dolma_urls",
		},
		{
			"WithVariant",
			Naming{Owner: "jakefau", Dataset: "dolma_urls", Variant: "cc-head"},
			"jakefau_dolma_urls_cc-head",
		},
		{
			"DefaultVariantIgnored",
			Naming{Owner: "jakefau", Dataset: "dolma_urls", Variant: "Default"},
			"jakefau_dolma_urls",
		},
		{
			"UnderscoreCleanup",
			Naming{Owner: "jakefau_", Dataset: "_dolma_urls_"},
			"jakefau_dolma_urls",
		},
		{
			"MissingOwner",
			Naming{Dataset: "dolma_urls"},
			"dolma_urls",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RepoID(tc.naming))
		})
	}
}
