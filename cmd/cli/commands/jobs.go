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
	jobsCmd.AddCommand(submitJobCmd)
	jobsCmd.AddCommand(destroyJobCmd)
	jobsCmd.AddCommand(getJobCmd)
	jobsCmd.AddCommand(jobLogsCmd)
	jobsCmd.AddCommand(cancelJobCmd)
	jobsCmd.AddCommand(listJobsCmd)

	for _, cmd := range []*cobra.Command{submitJobCmd, destroyJobCmd} {
		cmd.Flags().StringP("file", "f", "", "JSON file containing the job request")
		cmd.Flags().String("resource-type", "", "Resource type (ec2, s3, vpc, rds, web_app, api_service)")
		cmd.Flags().String("name", "", "Resource name")
		cmd.Flags().String("environment", "", "Target environment")
		cmd.Flags().String("region", "", "Target region")
		cmd.Flags().String("priority", "", "Queue priority (high, default, low)")
	}

	listJobsCmd.Flags().IntP("limit", "l", 20, "Maximum number of jobs to list")
}

// GetJobsCmd returns the jobs command group
func GetJobsCmd() *cobra.Command {
	return jobsCmd
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Submit and track provisioning jobs",
}

func readJobRequest(cmd *cobra.Command) (handlers.InfrastructureRequest, error) {
	var req handlers.InfrastructureRequest

	jsonFile, _ := cmd.Flags().GetString("file")
	if jsonFile != "" {
		// #nosec G304 -- operator-supplied path
		data, err := os.ReadFile(jsonFile)
		if err != nil {
			return req, fmt.Errorf("error reading JSON file: %w", err)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("error parsing JSON file: %w", err)
		}
	}

	if v, _ := cmd.Flags().GetString("resource-type"); v != "" {
		req.ResourceType = v
	}
	if v, _ := cmd.Flags().GetString("name"); v != "" {
		req.Name = v
	}
	if v, _ := cmd.Flags().GetString("environment"); v != "" {
		req.Environment = v
	}
	if v, _ := cmd.Flags().GetString("region"); v != "" {
		req.Region = v
	}
	if v, _ := cmd.Flags().GetString("priority"); v != "" {
		req.Priority = v
	}

	if req.ResourceType == "" || req.Name == "" {
		return req, fmt.Errorf("resource-type and name are required (via flags or --file)")
	}
	return req, nil
}

var submitJobCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a provisioning job",
	Run: func(cmd *cobra.Command, _ []string) {
		req, err := readJobRequest(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		jobID, err := apiClient.CreateInfrastructure(context.Background(), req)
		if err != nil {
			fmt.Printf("Error submitting job: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Job queued: %s\n", jobID)
	},
}

var destroyJobCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Submit a teardown job",
	Run: func(cmd *cobra.Command, _ []string) {
		req, err := readJobRequest(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		jobID, err := apiClient.DeleteInfrastructure(context.Background(), req)
		if err != nil {
			fmt.Printf("Error submitting job: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Job queued: %s\n", jobID)
	},
}

var getJobCmd = &cobra.Command{
	Use:   "get [job-id]",
	Short: "Get a job's status and result",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		record, err := apiClient.GetJob(context.Background(), args[0])
		if err != nil {
			fmt.Printf("Error getting job: %v\n", err)
			os.Exit(1)
		}
		printJSON(record)
	},
}

var jobLogsCmd = &cobra.Command{
	Use:   "logs [job-id]",
	Short: "Get a job's execution logs",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		logs, err := apiClient.GetJobLogs(context.Background(), args[0])
		if err != nil {
			fmt.Printf("Error getting logs: %v\n", err)
			os.Exit(1)
		}
		for _, entry := range logs {
			step := entry.Step
			if step == "" {
				step = "-"
			}
			fmt.Printf("%s  %-7s  %-18s  %s\n",
				entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Level, step, entry.Message)
		}
	},
}

var cancelJobCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel a queued or running job",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		if err := apiClient.CancelJob(context.Background(), args[0]); err != nil {
			fmt.Printf("Error cancelling job: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Job cancelled: %s\n", args[0])
	},
}

var listJobsCmd = &cobra.Command{
	Use:   "list",
	Short: "List known jobs, newest first",
	Run: func(cmd *cobra.Command, _ []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		records, err := apiClient.ListJobs(context.Background(), limit)
		if err != nil {
			fmt.Printf("Error listing jobs: %v\n", err)
			os.Exit(1)
		}
		for _, record := range records {
			fmt.Printf("%-36s  %-10s", record.JobID, record.Status)
			if record.ErrorMessage != "" {
				fmt.Printf("  %s", record.ErrorMessage)
			}
			fmt.Println()
		}
	},
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
