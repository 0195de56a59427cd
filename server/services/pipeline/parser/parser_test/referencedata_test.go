package parser_test

const pipelineYAML = `
version: "1"
jobs:
  - id: compile
    name: Compile
    params:
      env.GOOS: linux
      level: 2
    artifactRules: |
      bin/** => dist
      -:bin/**/*.tmp
    commands:
      - go build -o bin/app ./...
  - name: lint
    commands: golangci-lint run
  - id: package
    dependencies:
      - target: compile
        reuseBuilds: "NO"
        onDependencyFailure: FAIL_DEPENDENT
        artifacts:
          cleanDestination: true
          artifactRules: dist/** => input
      - lint
    commands:
      - tar czf app.tgz input
    artifactRules: app.tgz
`

const pipelineJSON = `{
  "version": 1,
  "jobs": [
    {
      "id": "compile",
      "name": "Compile",
      "params": {"env.GOOS": "linux", "level": 2},
      "artifactRules": ["bin/** => dist", "-:bin/**/*.tmp"],
      "commands": ["go build -o bin/app ./..."]
    },
    {
      "name": "lint",
      "commands": "golangci-lint run"
    },
    {
      "id": "package",
      "dependencies": [
        {
          "target": "compile",
          "reuseBuilds": "ALWAYS_REBUILD",
          "onDependencyFailure": "FAIL_DEPENDENT",
          "artifacts": {"cleanDestination": true, "artifactRules": "dist/** => input"}
        },
        "lint"
      ],
      "commands": ["tar czf app.tgz input"],
      "artifactRules": "app.tgz"
    }
  ]
}`

const pipelineJSONNET = `
local job(id, commands) = { id: id, commands: commands };
{
  jobs: [
    job("compile", ["go build -o bin/app ./..."]) + {
      name: "Compile",
      params: { "env.GOOS": "linux", level: "2" },
      artifactRules: "bin/** => dist, -:bin/**/*.tmp",
    },
    { name: "lint", commands: ["golangci-lint run"] },
    job("package", ["tar czf app.tgz input"]) + {
      dependencies: [
        {
          target: "compile",
          reuseBuilds: "NO",
          onDependencyFailure: "FAIL_DEPENDENT",
          artifacts: { cleanDestination: true, artifactRules: "dist/** => input" },
        },
        "lint",
      ],
      artifactRules: "app.tgz",
    },
  ],
}
`

const pipelineHCL = `
version = "1"

job "compile" {
  name           = "Compile"
  params         = { "env.GOOS" = "linux", level = "2" }
  artifact_rules = "bin/** => dist\n-:bin/**/*.tmp"
  commands       = ["go build -o bin/app ./..."]
}

job "lint" {
  commands = ["golangci-lint run"]
}

job "package" {
  commands       = ["tar czf app.tgz input"]
  artifact_rules = "app.tgz"

  dependency "compile" {
    reuse_builds          = "ALWAYS_REBUILD"
    on_dependency_failure = "FAIL_DEPENDENT"
    artifacts {
      clean_destination = true
      artifact_rules    = "dist/** => input"
    }
  }

  dependency "lint" {}
}
`
