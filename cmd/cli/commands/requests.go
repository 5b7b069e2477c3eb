package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackdhq/stackd/internal/api/v1/handlers"
)

func init() {
	requestsCmd.AddCommand(submitRequestCmd)
	requestsCmd.AddCommand(getRequestCmd)
	requestsCmd.AddCommand(listRequestsCmd)
	requestsCmd.AddCommand(approveRequestCmd)
	requestsCmd.AddCommand(rejectRequestCmd)

	submitRequestCmd.Flags().StringP("file", "f", "", "JSON file containing the provisioning request")
	submitRequestCmd.Flags().String("requester", "", "Requesting user")

	listRequestsCmd.Flags().String("requester", "", "Filter by requesting user")

	approveRequestCmd.Flags().String("approver", "", "Approving user")
	rejectRequestCmd.Flags().String("approver", "", "Rejecting user")
	rejectRequestCmd.Flags().String("reason", "", "Rejection reason")
}

// GetRequestsCmd returns the requests command group
func GetRequestsCmd() *cobra.Command {
	return requestsCmd
}

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Manage provisioning requests awaiting approval",
}

var submitRequestCmd = &cobra.Command{
	Use:   "submit",
	Short: "File a provisioning request for approval",
	Run: func(cmd *cobra.Command, _ []string) {
		jsonFile, _ := cmd.Flags().GetString("file")
		if jsonFile == "" {
			fmt.Println("Error: JSON file not provided")
			os.Exit(1)
		}
		// #nosec G304 -- operator-supplied path
		data, err := os.ReadFile(jsonFile)
		if err != nil {
			fmt.Printf("Error reading JSON file: %v\n", err)
			os.Exit(1)
		}

		var body handlers.SubmitRequestBody
		if err := json.Unmarshal(data, &body); err != nil {
			fmt.Printf("Error parsing JSON file: %v\n", err)
			os.Exit(1)
		}
		if v, _ := cmd.Flags().GetString("requester"); v != "" {
			body.Requester = v
		}

		req, err := apiClient.SubmitRequest(context.Background(), body)
		if err != nil {
			fmt.Printf("Error submitting request: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Request filed: %s\n", req.RequestID)
	},
}

var getRequestCmd = &cobra.Command{
	Use:   "get [request-id]",
	Short: "Get a provisioning request",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		req, err := apiClient.GetRequest(context.Background(), args[0])
		if err != nil {
			fmt.Printf("Error getting request: %v\n", err)
			os.Exit(1)
		}
		printJSON(req)
	},
}

var listRequestsCmd = &cobra.Command{
	Use:   "list",
	Short: "List provisioning requests",
	Run: func(cmd *cobra.Command, _ []string) {
		requester, _ := cmd.Flags().GetString("requester")
		reqs, err := apiClient.ListRequests(context.Background(), requester)
		if err != nil {
			fmt.Printf("Error listing requests: %v\n", err)
			os.Exit(1)
		}
		for _, req := range reqs {
			fmt.Printf("%-36s  %-10s  %-12s  %s/%s\n",
				req.RequestID, req.ApprovalStatus, req.Requester, req.ResourceType, req.ResourceName)
		}
	},
}

var approveRequestCmd = &cobra.Command{
	Use:   "approve [request-id]",
	Short: "Approve a pending request and queue its job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		approver, _ := cmd.Flags().GetString("approver")
		if approver == "" {
			fmt.Println("Error: --approver is required")
			os.Exit(1)
		}

		req, err := apiClient.ApproveRequest(context.Background(), args[0], approver)
		if err != nil {
			fmt.Printf("Error approving request: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Request approved, job queued: %s\n", req.JobID)
	},
}

var rejectRequestCmd = &cobra.Command{
	Use:   "reject [request-id]",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		approver, _ := cmd.Flags().GetString("approver")
		if approver == "" {
			fmt.Println("Error: --approver is required")
			os.Exit(1)
		}
		reason, _ := cmd.Flags().GetString("reason")

		req, err := apiClient.RejectRequest(context.Background(), args[0], approver, reason)
		if err != nil {
			fmt.Printf("Error rejecting request: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Request rejected: %s\n", req.RequestID)
	},
}
