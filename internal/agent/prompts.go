package agent

// Prompts are FString templates: {name} is a field, literal braces are doubled.

type stagePrompt struct {
	system string
	user   string
}

var executionPrompt = stagePrompt{
	system: `You are an AI task execution agent. Your objective is: {objective}`,
	user: `Your current task is: {task}

Results of earlier tasks that may help:
{context}

Execute this task and provide a detailed response that can be used for future tasks.
Include any relevant information, insights, or conclusions.`,
}

var creationPrompt = stagePrompt{
	system: `You are an AI task creation agent. Based on the result of the last task and the current task list, create new tasks to be completed that will help achieve the original objective: {objective}`,
	user: `Last task result: {result}
Current task: {task_description}
Incomplete tasks:
{incomplete_tasks}
Completed tasks:
{completed_tasks}

Create only the new tasks that are still needed and do not repeat incomplete or completed ones.
Return only the new tasks, one per line. Return nothing if the objective is met.`,
}

var prioritizationPrompt = stagePrompt{
	system: `You are an AI task prioritization agent working toward the objective: {objective}`,
	user: `You have the following tasks:

{task_names}

Prioritize these tasks based on:
1. Dependencies between tasks
2. Complexity and time required
3. Impact on achieving the overall objective

Return the task names unchanged, in prioritized order, one per line.`,
}

var planningPrompt = stagePrompt{
	system: `You are an autonomous agent that works through a list of goals one action at a time.`,
	user: `Given these goals:
{goals}
Completed tasks:
{completed_tasks}
Current task: {current_task}

What should be the next action? Consider:
1. Breaking down complex goals into smaller tasks
2. Using available tools effectively
3. Maintaining progress toward the goals

Respond with a specific next action and its rationale.`,
}

var actionPrompt = stagePrompt{
	system: `You carry out one action using the available tools. Call a tool when it helps; every tool takes a single "input" string.

Available tools:
{tools}`,
	user: `Action to execute: {action}
Previous result: {previous_result}

Execute this action with the available tools and report what was done.`,
}

var reflectionPrompt = stagePrompt{
	system: `You review the actions of an autonomous agent.`,
	user: `Action taken: {action}
Result: {result}
Goals:
{goals}

Evaluate the result and suggest improvements or next steps.
Consider:
1. Was the action successful?
2. What was learned?
3. What could be done differently?
4. How does this contribute to the goals?`,
}
