package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/astrofix/astrofix/internal/api"
	"github.com/astrofix/astrofix/internal/site"
	"github.com/astrofix/astrofix/internal/svcctx"
)

// SitePageEndpoint serves deployed page HTML at GET /site/{hash} and
// GET /site/{hash}/{page_id}.
type SitePageEndpoint struct{}

func (e *SitePageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/site/", e.handler
}

func (e *SitePageEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Fetch a deployed page
//	@Description	Serve the index page of a deployed site, or a specific page by ID
//	@Tags			sites
//	@Produce		html
//	@Param			hash	path		string	true	"Site hash"
//	@Param			page_id	path		string	false	"Page ID"
//	@Success		200		{string}	string
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/site/{hash}/{page_id} [get]
func (e *SitePageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	hash, pageID, ok := splitSitePath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}

	deployer := svcctx.DeployerFrom(r.Context())
	if deployer == nil {
		writeError(w, http.StatusServiceUnavailable, "site storage not initialized")
		return
	}

	markup, err := deployer.Fetch(hash, pageID)
	if err != nil {
		if errors.Is(err, site.ErrNotFound) {
			writeError(w, http.StatusNotFound, "site not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(markup))
}

// splitSitePath parses "/site/{hash}" or "/site/{hash}/{page_id}". An empty
// page ID means the index page.
func splitSitePath(path string) (hash, pageID string, ok bool) {
	const prefix = "/site/"
	if len(path) <= len(prefix) {
		return "", "", false
	}
	rest := path[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			if rest[:i] == "" {
				return "", "", false
			}
			return rest[:i], rest[i+1:], true
		}
	}
	return rest, "", true
}

func (e *SitePageEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Manage deployed sites",
	}

	var out string
	fetchCmd := &cobra.Command{
		Use:   "fetch <hash> [page-id]",
		Short: "Fetch a deployed page's HTML",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/site/" + args[0]
			if len(args) == 2 {
				path += "/" + args[1]
			}

			client := api.NewClient(getServerURL())
			markup, err := client.GetRaw(cmd.Context(), path)
			if err != nil {
				return err
			}
			if out != "" {
				return os.WriteFile(out, markup, 0o644)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(markup))
			return err
		},
	}
	fetchCmd.Flags().StringVarP(&out, "output-file", "f", "", "Write the page HTML to a file")

	deleteCmd := &cobra.Command{
		Use:   "delete <hash>",
		Short: "Delete a deployed site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/site/"+args[0]); err != nil {
				return err
			}
			return api.Output(map[string]string{"status": "deleted", "hash": args[0]})
		},
	}

	cmd.AddCommand(fetchCmd, deleteCmd)
	return cmd
}

// SiteDeleteEndpoint removes a deployed site at DELETE /site/{hash}.
type SiteDeleteEndpoint struct{}

func (e *SiteDeleteEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/site/{hash}", e.handler
}

func (e *SiteDeleteEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Delete a deployed site
//	@Description	Remove a deployed site and all of its pages
//	@Tags			sites
//	@Produce		json
//	@Param			hash	path		string	true	"Site hash"
//	@Success		200		{object}	map[string]string
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/site/{hash} [delete]
func (e *SiteDeleteEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")

	deployer := svcctx.DeployerFrom(r.Context())
	if deployer == nil {
		writeError(w, http.StatusServiceUnavailable, "site storage not initialized")
		return
	}

	if err := deployer.Delete(hash); err != nil {
		if errors.Is(err, site.ErrNotFound) {
			writeError(w, http.StatusNotFound, "site not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"hash":   hash,
	})
}

func (e *SiteDeleteEndpoint) Command(getServerURL func() string) *cobra.Command {
	// The delete command ships under "api site delete".
	return &cobra.Command{
		Use:    "site-delete <hash>",
		Hidden: true,
		Short:  "Delete a deployed site",
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/site/"+args[0]); err != nil {
				return err
			}
			return api.Output(map[string]string{"status": "deleted", "hash": args[0]})
		},
	}
}
