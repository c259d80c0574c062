package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/astrofix/astrofix/internal/api"
	"github.com/astrofix/astrofix/internal/svcctx"
)

// SiteInfo describes one deployed site in a listing.
type SiteInfo struct {
	Hash        string `json:"hash"`
	Description string `json:"description,omitempty"`
	Style       string `json:"style,omitempty"`
	NumPages    int    `json:"num_pages"`
	URL         string `json:"url"`
}

// SitesResponse is the response for GET /sites.
type SitesResponse struct {
	Sites []SiteInfo `json:"sites"`
	Total int        `json:"total"`
}

// SitesEndpoint handles GET /sites.
type SitesEndpoint struct{}

func (e *SitesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/sites", e.handler
}

func (e *SitesEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		List deployed sites
//	@Description	List every deployed site with its metadata
//	@Tags			sites
//	@Produce		json
//	@Success		200	{object}	SitesResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/sites [get]
func (e *SitesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	deployer := svcctx.DeployerFrom(r.Context())
	cfgMgr := svcctx.ConfigFrom(r.Context())
	if deployer == nil || cfgMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "site storage not initialized")
		return
	}
	baseURL := cfgMgr.Get().Deploy.BaseURL

	infos, err := deployer.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sites := make([]SiteInfo, len(infos))
	for i, info := range infos {
		sites[i] = SiteInfo{
			Hash:        info.Hash,
			Description: info.Metadata.Description,
			Style:       info.Metadata.Style,
			NumPages:    info.Metadata.NumPages,
			URL:         siteURL(baseURL, info.Hash),
		}
	}

	writeJSON(w, http.StatusOK, SitesResponse{Sites: sites, Total: len(sites)})
}

func (e *SitesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List deployed sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SitesResponse
			if err := client.Get(cmd.Context(), "/sites", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
